package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kakeibo/internal/auth"
	"kakeibo/internal/config"
	"kakeibo/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"
)

func date(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// UserTestSuite provides a test suite for user operations
type UserTestSuite struct {
	suite.Suite
	db  *DB
	ctx context.Context
}

// SetupTest runs before each test
func (suite *UserTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()
}

// TearDownTest runs after each test
func (suite *UserTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *UserTestSuite) TestCreateUser() {
	hash, err := auth.HashPassword("pw123")
	require.NoError(suite.T(), err)

	user, err := suite.db.CreateUser(suite.ctx, "alice", "a@x.com", hash)
	require.NoError(suite.T(), err)

	assert.NotZero(suite.T(), user.ID)
	assert.Equal(suite.T(), "alice", user.Username)
	assert.Equal(suite.T(), "a@x.com", user.Email)
	assert.NotEqual(suite.T(), "pw123", user.PasswordHash)
	assert.True(suite.T(), auth.CheckPassword("pw123", user.PasswordHash))
}

func (suite *UserTestSuite) TestGetUserByEmail() {
	_, err := suite.db.CreateUser(suite.ctx, "alice", "a@x.com", "hash")
	require.NoError(suite.T(), err)

	user, err := suite.db.GetUserByEmail(suite.ctx, "a@x.com")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "alice", user.Username)

	_, err = suite.db.GetUserByEmail(suite.ctx, "nobody@x.com")
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *UserTestSuite) TestDuplicateEmailAllowed() {
	first, err := suite.db.CreateUser(suite.ctx, "alice", "a@x.com", "hash1")
	require.NoError(suite.T(), err)
	_, err = suite.db.CreateUser(suite.ctx, "alice2", "a@x.com", "hash2")
	require.NoError(suite.T(), err, "email uniqueness is not enforced")

	user, err := suite.db.GetUserByEmail(suite.ctx, "a@x.com")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), first.ID, user.ID, "earliest registration wins")

	count, err := suite.db.UserCount(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, count)
}

func (suite *UserTestSuite) TestEmptyFieldsAccepted() {
	user, err := suite.db.CreateUser(suite.ctx, "", "", "hash")
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), user.Username)
}

// RecordTestSuite provides a test suite for record operations
type RecordTestSuite struct {
	suite.Suite
	db    *DB
	ctx   context.Context
	alice *models.User
	bob   *models.User
}

// SetupTest runs before each test
func (suite *RecordTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()

	suite.alice, err = db.CreateUser(suite.ctx, "alice", "a@x.com", "hash")
	require.NoError(suite.T(), err, "failed to create alice")
	suite.bob, err = db.CreateUser(suite.ctx, "bob", "b@x.com", "hash")
	require.NoError(suite.T(), err, "failed to create bob")
}

// TearDownTest runs after each test
func (suite *RecordTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *RecordTestSuite) add(user *models.User, day, category string, amount int64, typ models.RecordType) int64 {
	id, err := suite.db.CreateRecord(suite.ctx, user.ID, date(day), category, amount, typ)
	require.NoError(suite.T(), err, "failed to create record %s/%s", day, category)
	return id
}

func (suite *RecordTestSuite) TestCreateAndListRecords() {
	suite.add(suite.alice, "2024-01-15", "commute", 500, models.Expense)
	suite.add(suite.alice, "2024-03-01", "salary", 300000, models.Income)
	suite.add(suite.alice, "2023-12-31", "food", 1200, models.Expense)

	records, err := suite.db.ListRecords(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), records, 3)

	// latest date first
	assert.Equal(suite.T(), "salary", records[0].Category)
	assert.Equal(suite.T(), models.Income, records[0].Type)
	assert.Equal(suite.T(), date("2024-03-01"), records[0].Date)
	assert.Equal(suite.T(), "commute", records[1].Category)
	assert.Equal(suite.T(), int64(500), records[1].Amount)
	assert.Equal(suite.T(), "food", records[2].Category)
}

func (suite *RecordTestSuite) TestSameDateNewestFirst() {
	first := suite.add(suite.alice, "2024-01-15", "food", 100, models.Expense)
	second := suite.add(suite.alice, "2024-01-15", "food", 200, models.Expense)

	records, err := suite.db.ListRecords(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), records, 2)
	assert.Equal(suite.T(), second, records[0].ID)
	assert.Equal(suite.T(), first, records[1].ID)
}

func (suite *RecordTestSuite) TestListIsolatedPerUser() {
	suite.add(suite.alice, "2024-01-15", "commute", 500, models.Expense)
	suite.add(suite.alice, "2024-01-16", "food", 800, models.Expense)

	records, err := suite.db.ListRecords(suite.ctx, suite.bob.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), records, "bob must never see alice's records")

	for _, r := range mustList(suite, suite.alice.ID) {
		assert.Equal(suite.T(), suite.alice.ID, r.UserID)
	}
}

func (suite *RecordTestSuite) TestDeleteRecord() {
	id := suite.add(suite.alice, "2024-01-15", "commute", 500, models.Expense)

	affected, err := suite.db.DeleteRecord(suite.ctx, suite.alice.ID, id)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), affected)
	assert.Empty(suite.T(), mustList(suite, suite.alice.ID))
}

func (suite *RecordTestSuite) TestDeleteByNonOwnerIsNoop() {
	id := suite.add(suite.alice, "2024-01-15", "commute", 500, models.Expense)

	affected, err := suite.db.DeleteRecord(suite.ctx, suite.bob.ID, id)
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), affected)

	records := mustList(suite, suite.alice.ID)
	require.Len(suite.T(), records, 1, "record must stay visible to its owner")
	assert.Equal(suite.T(), id, records[0].ID)
}

func (suite *RecordTestSuite) TestDeleteMissingRecord() {
	affected, err := suite.db.DeleteRecord(suite.ctx, suite.alice.ID, 9999)
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), affected)
}

func (suite *RecordTestSuite) TestMonthlySummary() {
	suite.add(suite.alice, "2024-01-15", "commute", 500, models.Expense)
	suite.add(suite.alice, "2024-01-25", "salary", 2000, models.Income)
	suite.add(suite.alice, "2024-02-01", "food", 300, models.Expense)
	suite.add(suite.alice, "2023-11-11", "bonus", 700, models.Income)
	suite.add(suite.bob, "2024-01-10", "food", 9999, models.Expense)

	summary, err := suite.db.MonthlySummary(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), []models.MonthlySummaryRow{
		{Month: "2024-02", TotalIncome: 0, TotalExpense: 300},
		{Month: "2024-01", TotalIncome: 2000, TotalExpense: 500},
		{Month: "2023-11", TotalIncome: 700, TotalExpense: 0},
	}, summary)
}

func (suite *RecordTestSuite) TestCategorySummary() {
	suite.add(suite.alice, "2024-03-01", "food", 300, models.Expense)
	suite.add(suite.alice, "2024-03-02", "commute", 100, models.Expense)
	suite.add(suite.alice, "2024-03-03", "salary", 5000, models.Income)

	summary, err := suite.db.CategorySummary(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), []models.CategorySummaryRow{
		{Year: 2024, Category: "commute", TotalExpense: 100},
		{Year: 2024, Category: "food", TotalExpense: 300},
	}, summary)
}

func (suite *RecordTestSuite) TestCategorySummaryOrdering() {
	suite.add(suite.alice, "2023-05-01", "rent", 800, models.Expense)
	suite.add(suite.alice, "2024-05-01", "rent", 900, models.Expense)
	suite.add(suite.alice, "2024-06-01", "food", 50, models.Expense)
	suite.add(suite.alice, "2024-07-01", "food", 70, models.Expense)

	summary, err := suite.db.CategorySummary(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), []models.CategorySummaryRow{
		{Year: 2024, Category: "food", TotalExpense: 120},
		{Year: 2024, Category: "rent", TotalExpense: 900},
		{Year: 2023, Category: "rent", TotalExpense: 800},
	}, summary)
}

func (suite *RecordTestSuite) TestBalanceSummary() {
	suite.add(suite.alice, "2024-01-15", "commute", 500, models.Expense)

	summary, err := suite.db.BalanceSummary(suite.ctx, suite.alice.ID, "commute")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), summary, 1)

	row := summary[0]
	assert.Equal(suite.T(), 2024, row.Year)
	assert.Equal(suite.T(), int64(500), row.Transport)
	assert.Equal(suite.T(), int64(0), row.OtherExpense)
	assert.Equal(suite.T(), int64(-500), row.DisposableIncome)
	assert.Equal(suite.T(), int64(-500), row.Balance)
}

func (suite *RecordTestSuite) TestBalanceSummaryDerivedColumns() {
	suite.add(suite.alice, "2024-01-25", "salary", 300000, models.Income)
	suite.add(suite.alice, "2024-02-03", "commute", 12000, models.Expense)
	suite.add(suite.alice, "2024-02-04", "food", 40000, models.Expense)
	suite.add(suite.alice, "2023-04-25", "salary", 250000, models.Income)
	suite.add(suite.alice, "2023-04-26", "rent", 80000, models.Expense)
	// an income row in the commute category is still income
	suite.add(suite.alice, "2023-05-01", "commute", 3000, models.Income)

	summary, err := suite.db.BalanceSummary(suite.ctx, suite.alice.ID, "commute")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), summary, 2)

	assert.Equal(suite.T(), 2024, summary[0].Year)
	assert.Equal(suite.T(), 2023, summary[1].Year)
	assert.Equal(suite.T(), int64(253000), summary[1].Income)
	assert.Equal(suite.T(), int64(0), summary[1].Transport)

	for _, row := range summary {
		assert.Equal(suite.T(), row.Income-row.Transport, row.DisposableIncome, "year %d", row.Year)
		assert.Equal(suite.T(), row.DisposableIncome-row.OtherExpense, row.Balance, "year %d", row.Year)
	}
}

func (suite *RecordTestSuite) TestSummariesEmpty() {
	monthly, err := suite.db.MonthlySummary(suite.ctx, suite.bob.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), monthly)

	balance, err := suite.db.BalanceSummary(suite.ctx, suite.bob.ID, "commute")
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), balance)
}

func mustList(suite *RecordTestSuite, userID int64) []models.Record {
	records, err := suite.db.ListRecords(suite.ctx, userID)
	require.NoError(suite.T(), err)
	return records
}

func TestNewDB_FileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kakeibo.db")
	ctx := context.Background()

	db, err := NewDB(path)
	require.NoError(t, err)
	_, err = db.CreateUser(ctx, "alice", "a@x.com", "hash")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// migrations are idempotent across restarts
	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	count, err := db.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOpen_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	db, err := Open(config.DBConfig{
		Driver:       DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "kakeibo.db"),
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	})
	require.NoError(t, err)
	defer db.Close()

	user, err := db.CreateUser(ctx, "alice", "a@x.com", "hash")
	require.NoError(t, err)

	const writers = 200
	var g errgroup.Group
	for i := range writers {
		g.Go(func() error {
			_, err := db.CreateRecord(ctx, user.ID, date("2024-01-15"), "food", int64(i+1), models.Expense)
			return err
		})
	}
	require.NoError(t, g.Wait(), "pooled writers must not fail with a locked database")

	records, err := db.ListRecords(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, records, writers)
}

func TestOpen_MigratesOnSeparateConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kakeibo.db")

	db, err := Open(config.DBConfig{Driver: DriverSQLite, Path: path, MaxOpenConns: 2})
	require.NoError(t, err)
	defer db.Close()

	// the migration handle is closed, the app pool stays usable
	require.NoError(t, db.Ping(context.Background()))
	count, err := db.UserCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	lite := &DB{driver: DriverSQLite}

	query := "DELETE FROM records WHERE id = ? AND user_id = ?"
	assert.Equal(t, "DELETE FROM records WHERE id = $1 AND user_id = $2", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

// Test suite runners
func TestUserSuite(t *testing.T) {
	suite.Run(t, new(UserTestSuite))
}

func TestRecordSuite(t *testing.T) {
	suite.Run(t, new(RecordTestSuite))
}
