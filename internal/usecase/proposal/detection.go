package proposal

import (
	"regexp"
	"sort"
	"strings"
)

var newBuildRe = regexp.MustCompile(`(?i)\bnew build|nouvelle construction\b`)

// resolveRegion picks the pricing region: explicit hint first, then a scan
// of the transcript for a known region name, then the configured default.
func (s *Service) resolveRegion(transcript, hint string) string {
	if hint != "" {
		return hint
	}

	lower := strings.ToLower(transcript)
	names := make([]string, 0, len(s.cfg.Regions))
	for name := range s.cfg.Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.Contains(lower, strings.ToLower(name)) {
			return name
		}
	}

	return s.cfg.DefaultRegion
}

// resolveBuildType returns "new" or "renovation". An explicit hint wins;
// otherwise mentions of a new build push the VAT up.
func resolveBuildType(transcript, hint string) string {
	if hint != "" {
		return hint
	}
	if newBuildRe.MatchString(transcript) {
		return "new"
	}
	return "renovation"
}

// detectTasks maps transcript keywords onto work task templates, in rule
// order. A transcript matching no rule still yields the default task.
func (s *Service) detectTasks(transcript string) []TaskRule {
	lower := strings.ToLower(transcript)

	var tasks []TaskRule
	for _, rule := range s.cfg.Tasks {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				tasks = append(tasks, rule)
				break
			}
		}
	}
	if len(tasks) == 0 {
		tasks = append(tasks, s.cfg.DefaultTask)
	}
	return tasks
}
