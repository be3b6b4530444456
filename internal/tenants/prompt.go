package tenants

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is used when neither the caller nor the tenant supplies one.
const DefaultSystemPrompt = "You are a friendly, professional phone receptionist for a small business. " +
	"Help callers with questions, check appointment availability, book appointments and take messages. " +
	"Keep answers short and natural, since this is a live phone call. " +
	"Never read out internal errors or system details; if something fails, apologize and offer to take a message."

// ResolvePrompt collapses the prompt storage locations into one value.
// First non-empty wins:
//  1. explicit (supplied by the immediate caller, e.g. a chat entry point)
//  2. the structured settings prompt
//  3. the legacy flat custom prompt
//  4. DefaultSystemPrompt
func ResolvePrompt(explicit string, cfg Config) string {
	for _, p := range []string{explicit, cfg.Settings.SystemPrompt, cfg.LegacyPrompt} {
		if p = strings.TrimSpace(p); p != "" {
			return p
		}
	}
	return DefaultSystemPrompt
}

// BuildInstructions produces the model instructions for a call: the resolved
// prompt, a persona line and the tenant's FAQs.
func BuildInstructions(cfg Config, explicit string) string {
	var b strings.Builder
	b.WriteString(ResolvePrompt(explicit, cfg))

	name := strings.TrimSpace(cfg.AIName)
	business := strings.TrimSpace(cfg.BusinessName)
	switch {
	case name != "" && business != "":
		fmt.Fprintf(&b, "\n\nYour name is %s and you answer the phone for %s.", name, business)
	case name != "":
		fmt.Fprintf(&b, "\n\nYour name is %s.", name)
	case business != "":
		fmt.Fprintf(&b, "\n\nYou answer the phone for %s.", business)
	}

	faqs := make([]FAQ, 0, len(cfg.FAQs))
	for _, f := range cfg.FAQs {
		if strings.TrimSpace(f.Question) == "" || strings.TrimSpace(f.Answer) == "" {
			continue
		}
		faqs = append(faqs, f)
	}
	if len(faqs) > 0 {
		b.WriteString("\n\nFrequently asked questions:")
		for _, f := range faqs {
			fmt.Fprintf(&b, "\nQ: %s\nA: %s", strings.TrimSpace(f.Question), strings.TrimSpace(f.Answer))
		}
	}

	if loc := cfg.Location(); loc != nil {
		fmt.Fprintf(&b, "\n\nAll times you discuss are in the %s timezone. Use ISO 8601 dates when calling functions.", loc.String())
	}
	return b.String()
}

// Greeting is the first thing the assistant says on a call.
func Greeting(cfg Config) string {
	if g := strings.TrimSpace(cfg.WelcomeMessage); g != "" {
		return g
	}
	return DefaultConfig().WelcomeMessage
}
