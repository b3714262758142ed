package refs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ai/atelier/pkg/models"
)

func TestTags(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   []string
	}{
		{"no mentions", "a sunset over mountains", nil},
		{"single mention", "paint this like @vangogh", []string{"vangogh"}},
		{"multiple mentions", "@hero fights @villain", []string{"hero", "villain"}},
		{"duplicates collapse", "@cat and @cat again", []string{"cat"}},
		{"order of first appearance", "@b then @a then @b", []string{"b", "a"}},
		{"hyphens and underscores", "use @my-style_2", []string{"my-style_2"}},
		{"email is still a mention", "send to user@example.com", []string{"example"}},
		{"bare at sign", "meet @ noon", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tags(tt.prompt))
		})
	}
}

// fakeStore returns canned references or a canned error.
type fakeStore struct {
	refs []models.ResolvedReference
	err  error
}

func (f *fakeStore) Resolve(_ context.Context, _ string, _ []string) ([]models.ResolvedReference, error) {
	return f.refs, f.err
}

func TestResolve(t *testing.T) {
	store := &fakeStore{refs: []models.ResolvedReference{
		{Tag: "vangogh", ImageURL: "https://img.test/vangogh.png"},
	}}
	r := New(store)

	flags, resolved := r.Resolve(context.Background(), models.RouteRequest{
		Prompt: "a portrait like @vangogh",
		UserID: "u1",
	})

	assert.True(t, flags.HasNamedReference)
	assert.False(t, flags.HasActiveImage)
	assert.False(t, flags.HasUploadedImage)
	assert.Equal(t, 1, flags.ReferenceCount)
	require.Len(t, resolved, 1)
	assert.Equal(t, "vangogh", resolved[0].Tag)
}

func TestResolveUnknownMention(t *testing.T) {
	r := New(&fakeStore{})

	flags, resolved := r.Resolve(context.Background(), models.RouteRequest{
		Prompt: "a portrait like @nobody",
	})

	assert.False(t, flags.HasNamedReference)
	assert.Equal(t, 0, flags.ReferenceCount)
	assert.Empty(t, resolved)
}

func TestResolveStoreOutage(t *testing.T) {
	r := New(&fakeStore{err: errors.New("store down")})

	flags, resolved := r.Resolve(context.Background(), models.RouteRequest{
		Prompt:         "like @vangogh",
		UploadedImages: []string{"https://img.test/upload.png"},
	})

	// Mentions stay unresolved; uploads still count.
	assert.False(t, flags.HasNamedReference)
	assert.True(t, flags.HasUploadedImage)
	assert.Equal(t, 1, flags.ReferenceCount)
	assert.Empty(t, resolved)
}

func TestResolveNilStore(t *testing.T) {
	r := New(nil)

	flags, resolved := r.Resolve(context.Background(), models.RouteRequest{
		Prompt: "like @vangogh",
	})

	assert.False(t, flags.HasNamedReference)
	assert.Empty(t, resolved)
}

func TestResolveDeduplicatesUploads(t *testing.T) {
	shared := "https://img.test/shared.png"
	store := &fakeStore{refs: []models.ResolvedReference{
		{Tag: "style", ImageURL: shared},
	}}
	r := New(store)

	flags, _ := r.Resolve(context.Background(), models.RouteRequest{
		Prompt:         "use @style",
		UploadedImages: []string{shared, "https://img.test/other.png"},
	})

	// The shared URL counts once.
	assert.Equal(t, 2, flags.ReferenceCount)
	assert.True(t, flags.HasNamedReference)
	assert.True(t, flags.HasUploadedImage)
}

func TestResolveActiveImageFlag(t *testing.T) {
	r := New(nil)

	flags, _ := r.Resolve(context.Background(), models.RouteRequest{
		Prompt:         "make it brighter",
		HasActiveImage: true,
	})

	assert.True(t, flags.HasActiveImage)
	assert.Equal(t, 0, flags.ReferenceCount)
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "refs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "u1", "vangogh", "https://img.test/v.png"))
	require.NoError(t, s.Save(ctx, "u1", "mascot", "https://img.test/m.png"))
	require.NoError(t, s.Save(ctx, "u2", "vangogh", "https://img.test/other.png"))

	refs, err := s.Resolve(ctx, "u1", []string{"vangogh", "unknown"})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "https://img.test/v.png", refs[0].ImageURL)

	all, err := s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.Delete(ctx, "u1", "mascot"))
	all, err = s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStoreSaveReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "u1", "style", "https://img.test/old.png"))
	require.NoError(t, s.Save(ctx, "u1", "style", "https://img.test/new.png"))

	refs, err := s.Resolve(ctx, "u1", []string{"style"})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "https://img.test/new.png", refs[0].ImageURL)
}

func TestResolverWithSQLiteStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "u1", "hero", "https://img.test/hero.png"))

	r := New(s)
	flags, resolved := r.Resolve(ctx, models.RouteRequest{
		Prompt: "draw @hero riding a bike",
		UserID: "u1",
	})

	assert.True(t, flags.HasNamedReference)
	require.Len(t, resolved, 1)
	assert.Equal(t, "hero", resolved[0].Tag)
}
