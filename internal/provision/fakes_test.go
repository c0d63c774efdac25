package provision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightsteps/backend/internal/identity"
	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/store"
)

// In-memory fakes for the engine's dependencies. Each returns copies of its
// rows (like a real store) and takes a mutex so concurrency tests are valid.

type memAccount struct {
	ref      identity.Ref
	password string
}

type memDirectory struct {
	mu      sync.Mutex
	byEmail map[string]*memAccount
	deleted []uuid.UUID
	creates int

	createErr error
	authErr   error
	updateErr error
}

func newMemDirectory() *memDirectory {
	return &memDirectory{byEmail: map[string]*memAccount{}}
}

func (d *memDirectory) FindByEmail(_ context.Context, email string) (*identity.Ref, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	acct, ok := d.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, identity.ErrNotFound
	}
	ref := acct.ref
	return &ref, nil
}

func (d *memDirectory) CreateAccount(_ context.Context, email, password string, preConfirmed bool) (*identity.Ref, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates++
	if d.createErr != nil {
		return nil, d.createErr
	}
	key := strings.ToLower(email)
	if _, ok := d.byEmail[key]; ok {
		return nil, identity.ErrEmailTaken
	}
	if len(password) < 8 {
		return nil, identity.ErrWeakPassword
	}
	acct := &memAccount{
		ref:      identity.Ref{ID: uuid.New(), Email: key, Confirmed: preConfirmed, CreatedAt: time.Now()},
		password: password,
	}
	d.byEmail[key] = acct
	ref := acct.ref
	return &ref, nil
}

func (d *memDirectory) DeleteAccount(_ context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, acct := range d.byEmail {
		if acct.ref.ID == id {
			delete(d.byEmail, key)
			d.deleted = append(d.deleted, id)
			return nil
		}
	}
	return identity.ErrNotFound
}

func (d *memDirectory) Authenticate(_ context.Context, email, password string) (*identity.Ref, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.authErr != nil {
		return nil, d.authErr
	}
	acct, ok := d.byEmail[strings.ToLower(email)]
	if !ok || acct.password != password {
		return nil, identity.ErrBadCredentials
	}
	ref := acct.ref
	return &ref, nil
}

func (d *memDirectory) UpdatePassword(_ context.Context, id uuid.UUID, password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.updateErr != nil {
		return d.updateErr
	}
	for _, acct := range d.byEmail {
		if acct.ref.ID == id {
			acct.password = password
			return nil
		}
	}
	return identity.ErrNotFound
}

type memRequests struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.OnboardingRequest

	createErr error
}

func newMemRequests() *memRequests {
	return &memRequests{byID: map[uuid.UUID]*models.OnboardingRequest{}}
}

func (r *memRequests) Create(_ context.Context, req *models.OnboardingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	req.ID = uuid.New()
	req.CreatedAt = time.Now()
	cp := *req
	r.byID[req.ID] = &cp
	return nil
}

func (r *memRequests) GetByID(_ context.Context, id uuid.UUID) (*models.OnboardingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[id]
	if !ok {
		return nil, errNotFound()
	}
	cp := *req
	return &cp, nil
}

func (r *memRequests) ListByStatus(_ context.Context, status string) ([]models.OnboardingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OnboardingRequest
	for _, req := range r.byID {
		if status == "" || req.Status == status {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (r *memRequests) MarkReviewed(_ context.Context, id uuid.UUID, status string, reviewerID uuid.UUID, tenantID *uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[id]
	if !ok {
		return false, errNotFound()
	}
	if req.Status != models.RequestPending {
		return false, nil
	}
	req.Status = status
	req.ReviewedBy = &reviewerID
	req.ReviewedAt = &at
	req.TenantID = tenantID
	return true, nil
}

type memTenants struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*models.Tenant
	bySlug map[string]uuid.UUID

	setStatusErr error
	deleted      []uuid.UUID
}

func newMemTenants() *memTenants {
	return &memTenants{byID: map[uuid.UUID]*models.Tenant{}, bySlug: map[string]uuid.UUID{}}
}

func (t *memTenants) Create(_ context.Context, tenant *models.Tenant) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.bySlug[tenant.Slug]; ok {
		return errors.New(`duplicate key value violates unique constraint "tenants_slug_key"`)
	}
	tenant.ID = uuid.New()
	tenant.CreatedAt = time.Now()
	cp := *tenant
	t.byID[tenant.ID] = &cp
	t.bySlug[tenant.Slug] = tenant.ID
	return nil
}

func (t *memTenants) GetByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tenant, ok := t.byID[id]
	if !ok {
		return nil, errNotFound()
	}
	cp := *tenant
	return &cp, nil
}

func (t *memTenants) GetBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.bySlug[slug]
	if !ok {
		return nil, errNotFound()
	}
	cp := *t.byID[id]
	return &cp, nil
}

func (t *memTenants) CountByContactEmail(_ context.Context, email string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, tenant := range t.byID {
		if strings.EqualFold(tenant.ContactEmail, email) {
			n++
		}
	}
	return n, nil
}

func (t *memTenants) SetOnboardingStatus(_ context.Context, id uuid.UUID, status string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.setStatusErr != nil {
		return t.setStatusErr
	}
	tenant, ok := t.byID[id]
	if !ok {
		return errNotFound()
	}
	tenant.OnboardingStatus = status
	return nil
}

func (t *memTenants) Delete(_ context.Context, id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tenant, ok := t.byID[id]
	if !ok {
		return errNotFound()
	}
	delete(t.bySlug, tenant.Slug)
	delete(t.byID, id)
	t.deleted = append(t.deleted, id)
	return nil
}

func (t *memTenants) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

type memProfiles struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.UserProfile

	createErr error
}

func newMemProfiles() *memProfiles {
	return &memProfiles{byID: map[uuid.UUID]*models.UserProfile{}}
}

func (p *memProfiles) Create(_ context.Context, profile *models.UserProfile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return p.createErr
	}
	profile.ID = uuid.New()
	profile.CreatedAt = time.Now()
	cp := *profile
	p.byID[profile.ID] = &cp
	return nil
}

func (p *memProfiles) GetByID(_ context.Context, id uuid.UUID) (*models.UserProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	profile, ok := p.byID[id]
	if !ok {
		return nil, errNotFound()
	}
	cp := *profile
	return &cp, nil
}

func (p *memProfiles) GetByIdentityID(_ context.Context, identityID uuid.UUID) (*models.UserProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, profile := range p.byID {
		if profile.IdentityID == identityID {
			cp := *profile
			return &cp, nil
		}
	}
	return nil, errNotFound()
}

func (p *memProfiles) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]models.UserProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.UserProfile
	for _, profile := range p.byID {
		if profile.TenantID != nil && *profile.TenantID == tenantID {
			out = append(out, *profile)
		}
	}
	return out, nil
}

func (p *memProfiles) Upsert(_ context.Context, profile *models.UserProfile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.byID {
		if existing.IdentityID == profile.IdentityID {
			existing.Role = profile.Role
			existing.TenantID = profile.TenantID
			if profile.Name != "" {
				existing.Name = profile.Name
			}
			existing.IsActive = true
			profile.ID = existing.ID
			return nil
		}
	}
	profile.ID = uuid.New()
	profile.CreatedAt = time.Now()
	cp := *profile
	p.byID[profile.ID] = &cp
	return nil
}

func (p *memProfiles) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	profile, ok := p.byID[id]
	if !ok {
		return errNotFound()
	}
	profile.IsActive = active
	return nil
}

func (p *memProfiles) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}

type memInvitations struct {
	mu     sync.Mutex
	byCode map[string]*models.InvitationCode

	// beforeMarkUsed runs once before the next conditional write, letting a
	// test interleave a rival redemption at the linearization point.
	beforeMarkUsed func()
}

func newMemInvitations() *memInvitations {
	return &memInvitations{byCode: map[string]*models.InvitationCode{}}
}

func (i *memInvitations) Create(_ context.Context, c *models.InvitationCode) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.byCode[c.Code]; ok {
		return errors.New(`duplicate key value violates unique constraint "invitation_codes_pkey"`)
	}
	c.CreatedAt = time.Now()
	cp := *c
	i.byCode[c.Code] = &cp
	return nil
}

func (i *memInvitations) GetByCode(_ context.Context, code string) (*models.InvitationCode, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	inv, ok := i.byCode[code]
	if !ok {
		return nil, errNotFound()
	}
	cp := *inv
	return &cp, nil
}

func (i *memInvitations) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]models.InvitationCode, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	var out []models.InvitationCode
	for _, inv := range i.byCode {
		if inv.TenantID == tenantID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (i *memInvitations) MarkUsed(_ context.Context, code, email string, at time.Time) (bool, error) {
	if hook := i.beforeMarkUsed; hook != nil {
		i.beforeMarkUsed = nil
		hook()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	inv, ok := i.byCode[code]
	if !ok {
		return false, errNotFound()
	}
	if inv.UsedAt != nil {
		return false, nil
	}
	email = strings.ToLower(email)
	inv.UsedAt = &at
	inv.UsedBy = &email
	return true, nil
}

func (i *memInvitations) Expire(_ context.Context, code string, at time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	inv, ok := i.byCode[code]
	if !ok {
		return errNotFound()
	}
	inv.ExpiresAt = at
	return nil
}

type sentEmail struct {
	To       string
	Template string
	Data     map[string]string
	TenantID *uuid.UUID
}

type memNotifier struct {
	mu    sync.Mutex
	sends []sentEmail
}

func (n *memNotifier) Send(_ context.Context, to, template string, data map[string]string, tenantID *uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, sentEmail{To: to, Template: template, Data: data, TenantID: tenantID})
	return nil
}

func (n *memNotifier) byTemplate(template string) []sentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEmail
	for _, s := range n.sends {
		if s.Template == template {
			out = append(out, s)
		}
	}
	return out
}

// testEnv bundles an engine with its fakes.
type testEnv struct {
	engine      *Engine
	dir         *memDirectory
	requests    *memRequests
	tenants     *memTenants
	profiles    *memProfiles
	invitations *memInvitations
	notifier    *memNotifier
}

func newTestEnv() *testEnv {
	env := &testEnv{
		dir:         newMemDirectory(),
		requests:    newMemRequests(),
		tenants:     newMemTenants(),
		profiles:    newMemProfiles(),
		invitations: newMemInvitations(),
		notifier:    &memNotifier{},
	}
	env.engine = NewEngine(env.dir, env.requests, env.tenants, env.profiles, env.invitations, env.notifier, nil)
	env.engine.RetryBackoff = time.Millisecond
	env.engine.AppBaseURL = "https://app.example.com"
	return env
}

// seedSuperadmin creates a superadmin profile (no directory account needed for
// engine-level tests).
func (env *testEnv) seedSuperadmin() *models.UserProfile {
	p := &models.UserProfile{
		IdentityID: uuid.New(),
		Email:      "root@brightsteps.app",
		Name:       "Platform Admin",
		Role:       models.RoleSuperadmin,
		IsActive:   true,
	}
	if err := env.profiles.Create(context.Background(), p); err != nil {
		panic(err)
	}
	return p
}

// seedTenant creates a tenant directly in the store.
func (env *testEnv) seedTenant(name string) *models.Tenant {
	t := &models.Tenant{
		Name:             name,
		Slug:             Slugify(name),
		ContactEmail:     "contact@" + Slugify(name) + ".example.com",
		OnboardingStatus: models.TenantOnboardingCompleted,
	}
	if err := env.tenants.Create(context.Background(), t); err != nil {
		panic(err)
	}
	return t
}

// seedMember creates a profile scoped to a tenant.
func (env *testEnv) seedMember(tenantID uuid.UUID, role models.Role, email string) *models.UserProfile {
	p := &models.UserProfile{
		IdentityID: uuid.New(),
		Email:      email,
		Name:       email,
		Role:       role,
		TenantID:   &tenantID,
		IsActive:   true,
	}
	if err := env.profiles.Create(context.Background(), p); err != nil {
		panic(err)
	}
	return p
}

func errNotFound() error { return store.ErrNotFound }
