package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_IsInScope(t *testing.T) {
	permissive := MustNew([]string{"example.com"}, []string{"10.0.0.0/8", "192.168.1.7"})
	strict := MustNew([]string{"example.com"}, []string{"10.0.0.0/8"}, WithStrictHosts())

	tests := []struct {
		name   string
		scope  Scope
		target string
		want   bool
	}{
		{name: "exact domain", scope: permissive, target: "example.com", want: true},
		{name: "subdomain", scope: permissive, target: "api.example.com", want: true},
		{name: "url with domain", scope: permissive, target: "https://www.example.com/login", want: true},
		{name: "case insensitive", scope: permissive, target: "WWW.Example.COM", want: true},
		{name: "foreign domain", scope: permissive, target: "evil.com", want: false},
		{name: "empty target", scope: permissive, target: "  ", want: false},
		{name: "bare host default allow", scope: permissive, target: "localhost", want: true},
		{name: "ip in range", scope: permissive, target: "10.1.2.3", want: true},
		{name: "single address range", scope: permissive, target: "192.168.1.7", want: true},
		{name: "ip with port in range", scope: permissive, target: "10.1.2.3:8080", want: true},
		{name: "ip url in range", scope: permissive, target: "http://10.9.9.9/admin", want: true},
		{name: "ip outside range", scope: permissive, target: "8.8.8.8", want: false},
		{name: "strict rejects bare host", scope: strict, target: "localhost", want: false},
		{name: "strict still allows domain", scope: strict, target: "example.com", want: true},
		{name: "strict allows ranged ip", scope: strict, target: "10.0.0.1", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewGuard(tt.scope).IsInScope(tt.target))
		})
	}
}

func TestNew_RejectsBadRange(t *testing.T) {
	_, err := New(nil, []string{"10.0.0.0/99"})
	assert.Error(t, err)

	_, err = New(nil, []string{"not-an-ip"})
	assert.Error(t, err)
}

func TestScope_AccessorsReturnCopies(t *testing.T) {
	s, err := New([]string{" Example.com ", ""}, []string{"10.0.0.1/8"})
	require.NoError(t, err)

	domains := s.Domains()
	domains[0] = "evil.com"

	assert.Equal(t, []string{"example.com"}, s.Domains())
	assert.Equal(t, []string{"10.0.0.0/8"}, s.IPRanges())
	assert.False(t, NewGuard(s).IsInScope("evil.com"))
}
