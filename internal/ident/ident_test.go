package ident_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AurifyAE/bullionpro-ledger/internal/ident"
)

func TestParse(t *testing.T) {
	tests := []struct {
		id         string
		prefix     string
		digits     string
		wantErr    bool
	}{
		{id: "PF482910", prefix: "PF", digits: "482910"},
		{id: "SF000123", prefix: "SF", digits: "000123"},
		{id: "PF12", wantErr: true},        // suffix too short
		{id: "pf482910", wantErr: true},    // lowercase prefix
		{id: "482910", wantErr: true},      // no prefix
		{id: "PF-482910", wantErr: true},   // separator not allowed
		{id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			prefix, digits, err := ident.Parse(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ident.ErrInvalidID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, prefix)
			assert.Equal(t, tt.digits, digits)
		})
	}
}

func TestProbeGenerator_FirstFree(t *testing.T) {
	g := ident.NewProbeGenerator(func(context.Context, string) (bool, error) {
		return false, nil
	}, 6, 5)

	id, err := g.Next(context.Background(), "PF")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "PF"))
	assert.Len(t, id, 8)

	_, _, err = ident.Parse(id)
	assert.NoError(t, err, "generated ids must parse")
}

func TestProbeGenerator_RetriesOnCollision(t *testing.T) {
	calls := 0
	g := ident.NewProbeGenerator(func(context.Context, string) (bool, error) {
		calls++
		return calls < 3, nil // first two probes collide
	}, 6, 5)

	id, err := g.Next(context.Background(), "SF")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, strings.HasPrefix(id, "SF"))
}

func TestProbeGenerator_Exhausted(t *testing.T) {
	g := ident.NewProbeGenerator(func(context.Context, string) (bool, error) {
		return true, nil // everything taken
	}, 6, 3)

	_, err := g.Next(context.Background(), "PF")
	assert.True(t, errors.Is(err, ident.ErrExhausted))
}

func TestProbeGenerator_PropagatesStoreError(t *testing.T) {
	boom := errors.New("store down")
	g := ident.NewProbeGenerator(func(context.Context, string) (bool, error) {
		return false, boom
	}, 6, 3)

	_, err := g.Next(context.Background(), "PF")
	assert.True(t, errors.Is(err, boom))
}

func TestSequenceGenerator_Monotonic(t *testing.T) {
	g := ident.NewSequenceGenerator(100001, 6)

	a, err := g.Next(context.Background(), "PF")
	require.NoError(t, err)
	b, err := g.Next(context.Background(), "PF")
	require.NoError(t, err)

	assert.Equal(t, "PF100001", a)
	assert.Equal(t, "PF100002", b)
}
