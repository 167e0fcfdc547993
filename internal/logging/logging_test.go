package logging

import (
	"bytes"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
		json    bool
	}{
		{name: "text", opts: Options{Level: "INFO", Format: "text"}},
		{name: "default format", opts: Options{Level: "debug"}},
		{name: "json", opts: Options{Level: "WARN", Format: "json"}, json: true},
		{name: "bad level", opts: Options{Level: "LOUD"}, wantErr: true},
		{name: "bad format", opts: Options{Level: "INFO", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf

			logger, err := New("adauth", tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			logger.Error("hello", "k", "v")
			if tt.json {
				assert.Contains(t, buf.String(), `"@message":"hello"`)
			} else {
				assert.Contains(t, buf.String(), "adauth: hello: k=v")
			}
		})
	}
}

func TestSubsystem(t *testing.T) {
	t.Setenv("ADAUTH_LOG_LDAP", "TRACE")

	var buf bytes.Buffer
	root, err := New("adauth", Options{Level: "INFO", Output: &buf})
	require.NoError(t, err)

	ldap := Subsystem(root, "ldap")
	http := Subsystem(root, "http")

	assert.Equal(t, hclog.Trace, ldap.GetLevel())
	assert.Equal(t, hclog.Info, http.GetLevel())
	assert.Equal(t, hclog.Info, root.GetLevel())

	ldap.Debug("bind started")
	http.Debug("request")
	assert.Contains(t, buf.String(), "adauth.ldap: bind started")
	assert.NotContains(t, buf.String(), "request")
}

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "***"},
		{"abc", "***"},
		{"abcd", "a**d"},
		{"hunter2", "h*****2"},
		{"averyverylongsecret", "a********t"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mask(tt.in))
		})
	}
}
