package pixel

import (
	"fmt"

	"github.com/osteele/liquid"

	"github.com/ignite/pixel-relay/internal/config"
)

// bootstrapTemplate renders the tag-manager bootstrap served to the
// storefront theme: consent-mode defaults first, then the container
// loader, so no tag can fire ahead of the default denials.
const bootstrapTemplate = `<!-- pixel-relay bootstrap -->
<script>
window.dataLayer = window.dataLayer || [];
function gtag(){dataLayer.push(arguments);}
gtag("consent", "default", {
  ad_personalization: "denied",
  ad_storage: "denied",
  ad_user_data: "denied",
  analytics_storage: "denied",
  functionality_storage: "denied",
  personalization_storage: "denied",
  security_storage: "granted",
  wait_for_update: {{ wait_for_update }}
});
gtag("set", "ads_data_redaction", {{ ads_data_redaction }});
gtag("set", "url_passthrough", {{ url_passthrough }});
</script>
<script>
(function(w,d,s,l,i){w[l]=w[l]||[];w[l].push({'gtm.start':new Date().getTime(),event:'gtm.js'});
var f=d.getElementsByTagName(s)[0],j=d.createElement(s),dl=l!='dataLayer'?'&l='+l:'';
j.async=true;j.src='https://www.googletagmanager.com/gtm.js?id='+i+dl;
f.parentNode.insertBefore(j,f);})(window,document,'script','dataLayer','{{ container_id }}');
</script>
<!-- end pixel-relay bootstrap -->
`

// RenderBootstrap renders the container bootstrap snippet from relay
// configuration.
func RenderBootstrap(cfg *config.Config) (string, error) {
	engine := liquid.NewEngine()
	bindings := map[string]any{
		"container_id":       cfg.Container.ID,
		"wait_for_update":    cfg.Consent.WaitForUpdateMS,
		"ads_data_redaction": cfg.Consent.AdsDataRedactionOn(),
		"url_passthrough":    cfg.Consent.URLPassthroughOn(),
	}
	out, err := engine.ParseAndRenderString(bootstrapTemplate, bindings)
	if err != nil {
		return "", fmt.Errorf("render bootstrap snippet: %w", err)
	}
	return out, nil
}
