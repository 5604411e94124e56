package injection

import "regexp"

// Rule is one prompt injection pattern.
type Rule struct {
	Name     string
	Regex    *regexp.Regexp
	Severity float64 // 0.0 to 1.0
	Category string  // instruction_bypass, role_override, prompt_leak, output_steering
}

// DefaultRules covers the English phrasings plus the Portuguese ones
// customers of the support bot actually write.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "ignore_previous",
			Regex:    regexp.MustCompile(`(?i)ignore\s+(all\s+)?(the\s+)?previous\s+instructions`),
			Severity: 0.95,
			Category: "instruction_bypass",
		},
		{
			Name:     "ignore_previous_pt",
			Regex:    regexp.MustCompile(`(?i)(ignore|desconsidere|esque[çc]a)\s+(todas\s+)?(as\s+)?instru[çc][õo]es\s+anteriores`),
			Severity: 0.95,
			Category: "instruction_bypass",
		},
		{
			Name:     "disregard_prior",
			Regex:    regexp.MustCompile(`(?i)disregard\s+(all\s+)?prior\s+(instructions|context|rules)`),
			Severity: 0.95,
			Category: "instruction_bypass",
		},
		{
			Name:     "jailbreak",
			Regex:    regexp.MustCompile(`(?i)\b(do\s+anything\s+now|jailbreak|unrestricted\s+mode|modo\s+irrestrito)\b`),
			Severity: 0.9,
			Category: "role_override",
		},
		{
			Name:     "system_prefix",
			Regex:    regexp.MustCompile(`(?i)^\s*(system|sistema)\s*:\s*`),
			Severity: 0.85,
			Category: "role_override",
		},
		{
			Name:     "developer_mode",
			Regex:    regexp.MustCompile(`(?i)(developer|debug|admin|root|desenvolvedor)\s+mode\s+(enabled|activated|on)|modo\s+(desenvolvedor|admin|debug)\s+(ativado|ligado)`),
			Severity: 0.85,
			Category: "role_override",
		},
		{
			Name:     "reveal_prompt",
			Regex:    regexp.MustCompile(`(?i)(reveal|show|print|repeat)\s+(your\s+)?(system\s+)?(prompt|instructions)|(mostre|revele|repita)\s+(suas?\s+)?(prompt|instru[çc][õo]es)`),
			Severity: 0.8,
			Category: "prompt_leak",
		},
		{
			Name:     "new_instructions",
			Regex:    regexp.MustCompile(`(?i)(new|updated|revised|novas?)\s+instru(ctions?|[çc][õo]es)\s*:`),
			Severity: 0.8,
			Category: "instruction_bypass",
		},
		{
			Name:     "response_prefix",
			Regex:    regexp.MustCompile(`(?i)respond\s+with\s*:\s*(sure|absolutely|of\s+course)|responda\s+apenas\s+com\s*:`),
			Severity: 0.75,
			Category: "output_steering",
		},
		{
			Name:     "you_are_now",
			Regex:    regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s+|a\s+partir\s+de\s+agora\s+voc[êe]\s+[ée]\s+`),
			Severity: 0.7,
			Category: "role_override",
		},
	}
}
