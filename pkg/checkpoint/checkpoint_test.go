package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cafenote/pkg/logger"
	"cafenote/pkg/models"
	"cafenote/pkg/window"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(filepath.Join(t.TempDir(), "results"), logger.NewNopLogger())
	require.NoError(t, err)
	return mgr
}

func sampleMembers() []models.AuthorRecord {
	return []models.AuthorRecord{
		{Nickname: "kim", MemberKey: "k1", SourceRef: "1/2"},
		{Nickname: "lee", MemberKey: "k2", SourceRef: "1/2"},
		{Nickname: "", MemberKey: "k3", SourceRef: "1/3"},
	}
}

func TestSaveAndLoad(t *testing.T) {
	mgr := newTestManager(t)

	latest, err := mgr.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest, "no snapshot yet")

	snap := &Snapshot{RunID: "run-1", Period: window.OneDay, Success: true, Members: sampleMembers()}
	require.NoError(t, mgr.Save(snap))
	assert.Equal(t, formatVersion, snap.Version)

	loaded, err := mgr.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Members, loaded.Members)
	assert.Equal(t, window.OneDay, loaded.Period)

	latest, err = mgr.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-1", latest.RunID)

	_, err = mgr.Load("missing")
	assert.Error(t, err)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	mgr := newTestManager(t)
	require.NoError(t, mgr.Save(&Snapshot{RunID: "r"}))

	entries, err := os.ReadDir(mgr.Dir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"crawl-r.json", "latest.json"}, names)
}

func TestListNewestFirst(t *testing.T) {
	mgr := newTestManager(t)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, mgr.Save(&Snapshot{RunID: "old", CreatedAt: base, Members: sampleMembers()[:1]}))
	require.NoError(t, mgr.Save(&Snapshot{RunID: "new", CreatedAt: base.Add(time.Hour), Success: true}))
	require.NoError(t, os.WriteFile(filepath.Join(mgr.Dir(), "crawl-broken.json"), []byte("{"), 0644))

	list, err := mgr.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].RunID)
	assert.Equal(t, 1, list[1].Members)

	require.NoError(t, mgr.Delete("old"))
	require.NoError(t, mgr.Delete("old"))
	list, err = mgr.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNewManagerRequiresDir(t *testing.T) {
	_, err := NewManager("", nil)
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	members := sampleMembers()

	assert.Len(t, Select(members, nil, nil), 3)

	only := Select(members, []string{"k1,lee"}, nil)
	require.Len(t, only, 2)
	assert.Equal(t, "k1", only[0].MemberKey)
	assert.Equal(t, "k2", only[1].MemberKey)

	skipped := Select(members, nil, []string{"kim", " k3 "})
	require.Len(t, skipped, 1)
	assert.Equal(t, "k2", skipped[0].MemberKey)

	assert.Empty(t, Select(members, []string{"k1"}, []string{"k1"}))
}
