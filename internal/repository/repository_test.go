package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/splax/peephost/internal/domain"
)

func TestNextAvailablePortFillsGap(t *testing.T) {
	reg := Registry{
		"a": {Port: 3000},
		"b": {Port: 3001},
		"c": {Port: 3003},
	}
	assert.Equal(t, 3002, NextAvailablePort(reg, 3000))
}

func TestNextAvailablePort(t *testing.T) {
	cases := []struct {
		name string
		reg  Registry
		base int
		want int
	}{
		{name: "empty", reg: Registry{}, base: 3000, want: 3000},
		{name: "contiguous", reg: Registry{"a": {Port: 3000}, "b": {Port: 3001}}, base: 3000, want: 3002},
		{name: "below base ignored", reg: Registry{"a": {Port: 80}}, base: 3000, want: 3000},
		{name: "webmail counted", reg: Registry{"a": {Port: 8001, WebmailPort: 8000}}, base: 8000, want: 8002},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextAvailablePort(tc.reg, tc.base))
		})
	}
}

func TestFindByDomainAndRecords(t *testing.T) {
	reg := Registry{
		"b": {Port: 3001, Domain: "b.example.com"},
		"a": {Port: 3000},
	}
	owner, ok := FindByDomain(reg, "b.example.com")
	assert.True(t, ok)
	assert.Equal(t, "b", owner)
	_, ok = FindByDomain(reg, "")
	assert.False(t, ok)

	recs := reg.Records()
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Equal(t, domain.ProjectRecord{Name: "a", Port: 3000}, recs[0])
}
