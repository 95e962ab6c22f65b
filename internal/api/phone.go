package api

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// normalizePhone parses a phone number in the configured default region
// and returns it in E.164 form without the leading "+". Numbers that are
// already account addresses pass through for the dispatcher to validate.
func (s *Server) normalizePhone(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "@") {
		return raw, raw != ""
	}

	region := s.gwCfg.DefaultRegion
	if region == "" {
		region = "ID"
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), true
}
