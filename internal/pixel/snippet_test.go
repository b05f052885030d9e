package pixel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pixel-relay/internal/config"
)

func TestRenderBootstrap(t *testing.T) {
	off := false
	cfg := &config.Config{
		Container: config.ContainerConfig{ID: "GTM-ABC123"},
		Consent: config.ConsentConfig{
			WaitForUpdateMS: 700,
			URLPassthrough:  &off,
		},
	}

	out, err := RenderBootstrap(cfg)
	require.NoError(t, err)

	assert.Contains(t, out, "googletagmanager.com/gtm.js")
	assert.Contains(t, out, "'GTM-ABC123'")
	assert.Contains(t, out, "wait_for_update: 700")
	assert.Contains(t, out, `gtag("set", "ads_data_redaction", true);`)
	assert.Contains(t, out, `gtag("set", "url_passthrough", false);`)

	// Consent defaults must precede the container loader.
	assert.Less(t,
		strings.Index(out, `gtag("consent", "default"`),
		strings.Index(out, "gtm.js"))
}
