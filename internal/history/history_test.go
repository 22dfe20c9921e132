package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sav-assist/internal/app"
	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/errors"
	"github.com/hpungsan/sav-assist/internal/store"
)

func sampleLogs() []calllog.CallLog {
	return []calllog.CallLog{
		{ID: "1", PhoneNumber: "0601020304", CustomerName: "Jean Dupont", TechnicianName: "Alice", Timestamp: 100},
		{ID: "2", PhoneNumber: "0611111111", CustomerName: "Marie Curie", TechnicianName: "Bob", Timestamp: 300, TicketCreated: true, TicketNumber: "TK-42"},
		{ID: "3", PhoneNumber: "0622222222", CustomerName: "Paul", TechnicianName: "Alice", Timestamp: 200},
		{ID: "4", PhoneNumber: "0633333333", CustomerName: "Zoé", TechnicianName: "Chloé", Timestamp: 300},
	}
}

func ids(logs []calllog.CallLog) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.ID
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		term string
		want []string
	}{
		{"empty matches all", "", []string{"1", "2", "3", "4"}},
		{"customer case-insensitive", "DUPONT", []string{"1"}},
		{"technician case-insensitive", "alice", []string{"1", "3"}},
		{"phone substring", "1111", []string{"2"}},
		{"ticket number", "TK-4", []string{"2"}},
		{"ticket number is case-sensitive", "tk-42", nil},
		{"accented name", "zoé", []string{"4"}},
		{"no match", "inconnu", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(sampleLogs(), tt.term))
			if tt.want == nil {
				require.Empty(t, got)
				return
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSortNewestFirst_Stable(t *testing.T) {
	logs := sampleLogs()
	SortNewestFirst(logs)
	// 2 and 4 share a timestamp and keep storage order
	require.Equal(t, []string{"2", "4", "3", "1"}, ids(logs))
}

func newBrowser() (*Browser, *app.State) {
	snap := store.Snapshot{Logs: sampleLogs()}
	st := app.New(snap, store.NewMemory(snap), app.Options{})
	return NewBrowser(st), st
}

func TestBrowser_ListFiltersAndSorts(t *testing.T) {
	b, _ := newBrowser()
	require.Equal(t, []string{"3", "1"}, ids(b.List("alice")))
}

func TestBrowser_Selection(t *testing.T) {
	b, _ := newBrowser()

	_, ok := b.Selected()
	require.False(t, ok)

	l, err := b.Select("3")
	require.NoError(t, err)
	require.Equal(t, "Paul", l.CustomerName)

	got, ok := b.Selected()
	require.True(t, ok)
	require.Equal(t, "3", got.ID)

	_, err = b.Select("404")
	require.True(t, errors.Is(err, errors.ErrNotFound))
	got, _ = b.Selected()
	require.Equal(t, "3", got.ID, "failed select keeps previous selection")

	b.Clear()
	_, ok = b.Selected()
	require.False(t, ok)
}

func TestBrowser_DeleteRequiresConfirmation(t *testing.T) {
	b, st := newBrowser()

	err := b.Delete(context.Background(), "1", false)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Len(t, st.Logs(), 4)
}

func TestBrowser_DeleteRemovesExactlyOne(t *testing.T) {
	b, st := newBrowser()
	_, err := b.Select("2")
	require.NoError(t, err)

	require.NoError(t, b.Delete(context.Background(), "2", true))
	require.Equal(t, []string{"1", "3", "4"}, ids(st.Logs()))
	_, ok := b.Selected()
	require.False(t, ok, "deleting the selected call clears the selection")

	err = b.Delete(context.Background(), "2", true)
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestFilter_PhonePrefix(t *testing.T) {
	logs := []calllog.CallLog{
		{ID: "a", PhoneNumber: "0601020304"},
		{ID: "b", PhoneNumber: "0700000000"},
		{ID: "c", PhoneNumber: "0612345678"},
	}
	require.Equal(t, []string{"a"}, ids(Filter(logs, "0601")))
}
