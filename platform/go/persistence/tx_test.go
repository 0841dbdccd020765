package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx and records Exec statements plus commit/rollback.
type fakeTx struct {
	stmts      []string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) Commit(ctx context.Context) error { f.committed = true; return nil }
func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}
func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, errors.New("not implemented")
}
func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Conn() *pgx.Conn { return nil }

// fakeBeginner returns a preconstructed transaction.
type fakeBeginner struct{ tx *fakeTx }

func (p *fakeBeginner) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return p.tx, nil
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	ftx := &fakeTx{}

	err := WithTx(context.Background(), &fakeBeginner{tx: ftx}, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "SELECT 1")
		return err
	})
	require.NoError(t, err)
	require.True(t, ftx.committed)
	require.False(t, ftx.rolledBack)
	require.Equal(t, []string{"SELECT 1"}, ftx.stmts)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ftx := &fakeTx{}
	boom := errors.New("boom")

	err := WithTx(context.Background(), &fakeBeginner{tx: ftx}, func(tx pgx.Tx) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, ftx.committed)
	require.True(t, ftx.rolledBack)
}

func TestSplitStatementsDropsCommentOnlyFragments(t *testing.T) {
	script := `-- header comment
CREATE TABLE a (id int);

-- trailing comment
CREATE INDEX a_idx ON a (id);
-- nothing after this
`
	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "CREATE TABLE a")
	require.Contains(t, stmts[1], "CREATE INDEX a_idx")
}
