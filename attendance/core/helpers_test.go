package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/console"
	tenancy "axiapac.com/workforce/core"
	"axiapac.com/workforce/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeTenants struct {
	company console.Company
	db      *gorm.DB
	poolErr error
}

func (f *fakeTenants) Company(_ context.Context, code string) (*console.Company, error) {
	if console.NormalizeCode(code) != f.company.Code || !f.company.Active {
		return nil, tenancy.ErrCompanyNotFoundOrInactive
	}
	c := f.company
	return &c, nil
}

func (f *fakeTenants) CompanyPool(ctx context.Context, code string) (*gorm.DB, error) {
	if _, err := f.Company(ctx, code); err != nil {
		return nil, err
	}
	if f.poolErr != nil {
		return nil, f.poolErr
	}
	return f.db, nil
}

type fakeVerifier struct {
	mu     sync.Mutex
	result VerificationResult
	err    error
	block  bool
	calls  int
}

func (f *fakeVerifier) Verify(ctx context.Context, identity FaceIdentity, image ImageRef) (VerificationResult, error) {
	f.mu.Lock()
	f.calls++
	result, err, block := f.result, f.err, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return VerificationResult{}, ctx.Err()
	}
	return result, err
}

type fakeImageStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func (s *fakeImageStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	uri := "s3://faces/" + key
	s.objects[uri] = data
	return uri, nil
}

func (s *fakeImageStore) Delete(_ context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, uri)
	s.deleted = append(s.deleted, uri)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func openTenantDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenant.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.TenantModels()...))
	return db
}

func testCompany() console.Company {
	return console.Company{
		Code:              "ACME",
		Active:            true,
		Timezone:          "UTC",
		WorkStart:         "08:00",
		WorkEnd:           "17:00",
		StandardWorkHours: 8,
	}
}

type fixture struct {
	db       *gorm.DB
	tenants  *fakeTenants
	verifier *fakeVerifier
	images   *fakeImageStore
	clock    *testClock
	user     model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTenantDB(t)
	user := model.User{EmployeeNo: "E100", Name: "Jo Smith", FaceTemplate: utils.Ptr("dGVtcGxhdGU="), Active: true}
	require.NoError(t, db.Create(&user).Error)
	return &fixture{
		db:       db,
		tenants:  &fakeTenants{company: testCompany(), db: db},
		verifier: &fakeVerifier{result: VerificationResult{DetectedFace: true, Liveness: true, MatchScore: 0.9}},
		images:   &fakeImageStore{},
		clock:    &testClock{now: time.Date(2025, 3, 3, 8, 10, 0, 0, time.UTC)},
		user:     user,
	}
}

func (f *fixture) processor(config Config) *Processor {
	return NewProcessor(f.tenants, f.verifier, nil, config,
		WithClock(f.clock.Now),
		WithImageStore(f.images),
	)
}

func buttonRequest() ClockRequest {
	return ClockRequest{
		CompanyCode: "acme",
		EmployeeNo:  "E100",
		Latitude:    utils.Ptr(-27.47),
		Longitude:   utils.Ptr(153.02),
		Address:     "1 Queen St",
		Method:      model.MethodButton,
	}
}

func faceRequest(imageURI string) ClockRequest {
	req := buttonRequest()
	req.Method = model.MethodFace
	if imageURI != "" {
		req.ImageURI = &imageURI
	}
	return req
}

func countRows(t *testing.T, db *gorm.DB, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}
