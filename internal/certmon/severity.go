package certmon

import (
	"fmt"
	"time"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
	SeverityNormal   = "normal"

	// AlertThresholdDays is the cutoff for sending a push. Severity tiers go
	// further (info up to 60 days) but those only show up in reports.
	AlertThresholdDays = 30
)

// Severity maps days until expiry to a tier.
func Severity(days int) string {
	switch {
	case days <= 7:
		return SeverityCritical
	case days <= 30:
		return SeverityWarning
	case days <= 60:
		return SeverityInfo
	default:
		return SeverityNormal
	}
}

func ShouldAlert(days int) bool {
	return days <= AlertThresholdDays
}

func alertTitle(days int) string {
	switch {
	case days <= 0:
		return "🔴 SSL Certificate EXPIRED"
	case days <= 7:
		return "🚨 SSL Certificate Expiring SOON"
	default:
		return "🔐 SSL Certificate Expiring Soon"
	}
}

func alertBody(name string, days int, expires time.Time, issuer string) string {
	var head string
	switch {
	case days <= 0:
		head = fmt.Sprintf("🔴 SSL EXPIRED: %s certificate has EXPIRED!", name)
	case days == 1:
		head = fmt.Sprintf("🔴 SSL EXPIRING: %s certificate expires in 1 day!", name)
	case days <= 7:
		head = fmt.Sprintf("🟠 SSL WARNING: %s certificate expires in %d days", name, days)
	case days <= 30:
		head = fmt.Sprintf("🟡 SSL NOTICE: %s certificate expires in %d days", name, days)
	default:
		head = fmt.Sprintf("ℹ️ SSL INFO: %s certificate expires in %d days", name, days)
	}
	return head +
		"\nExpires: " + expires.UTC().Format("2006-01-02 15:04") + " UTC" +
		"\nIssuer: " + issuer
}
