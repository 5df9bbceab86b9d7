package salesforce

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAccountsByName(t *testing.T) {
	t.Run("returns matches", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, soql string, out any) error {
				assert.Contains(t, soql, "Name = 'Acme Corp'")
				assert.Contains(t, soql, "Name LIKE 'Acme Corp%'")
				assert.Contains(t, soql, "LIMIT 5")

				accounts := out.(*[]Account)
				*accounts = []Account{{ID: "001xx", Name: "Acme Corp"}}
				return nil
			},
		}

		accts, err := FindAccountsByName(context.Background(), mock, "Acme Corp", 0)
		require.NoError(t, err)
		require.Len(t, accts, 1)
		assert.Equal(t, "001xx", accts[0].ID)
	})

	t.Run("escapes quotes and wildcards", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, soql string, _ any) error {
				assert.Contains(t, soql, `Name = 'O\'Brien 100%'`)
				assert.Contains(t, soql, `LIKE 'O\'Brien 100\%%'`)
				return nil
			},
		}
		_, err := FindAccountsByName(context.Background(), mock, "O'Brien 100%", 3)
		require.NoError(t, err)
	})

	t.Run("blank name", func(t *testing.T) {
		_, err := FindAccountsByName(context.Background(), &mockClient{}, "  ", 1)
		assert.Error(t, err)
	})

	t.Run("query error", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(context.Context, string, any) error { return errors.New("connection refused") },
		}
		_, err := FindAccountsByName(context.Background(), mock, "Acme", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "find accounts by name")
	})
}

func TestFindAccountsByNames(t *testing.T) {
	t.Run("builds IN clause", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, soql string, out any) error {
				assert.Contains(t, soql, "Name IN ('Acme', 'Beta\\'s')")
				accounts := out.(*[]Account)
				*accounts = []Account{{ID: "1", Name: "Acme"}}
				return nil
			},
		}
		accts, err := FindAccountsByNames(context.Background(), mock, []string{"Acme", "Beta's"})
		require.NoError(t, err)
		assert.Len(t, accts, 1)
	})

	t.Run("empty input skips query", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(context.Context, string, any) error {
				t.Fatal("unexpected query")
				return nil
			},
		}
		accts, err := FindAccountsByNames(context.Background(), mock, nil)
		require.NoError(t, err)
		assert.Nil(t, accts)
	})

	t.Run("too many names", func(t *testing.T) {
		names := make([]string, MaxNamesPerQuery+1)
		for i := range names {
			names[i] = fmt.Sprintf("n%d", i)
		}
		_, err := FindAccountsByNames(context.Background(), &mockClient{}, names)
		assert.Error(t, err)
	})
}

func TestFindAccountByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, soql string, out any) error {
				assert.Contains(t, soql, "Id = '001xx'")
				accounts := out.(*[]Account)
				*accounts = []Account{{ID: "001xx", Name: "Acme Corp"}}
				return nil
			},
		}
		acct, err := FindAccountByID(context.Background(), mock, "001xx")
		require.NoError(t, err)
		require.NotNil(t, acct)
		assert.Equal(t, "Acme Corp", acct.Name)
	})

	t.Run("not found", func(t *testing.T) {
		acct, err := FindAccountByID(context.Background(), &mockClient{}, "001xx")
		require.NoError(t, err)
		assert.Nil(t, acct)
	})
}
