package complaint

import (
	"strings"
	"testing"
)

func TestParseDamageType(t *testing.T) {
	tests := []struct {
		input   string
		want    DamageType
		wantErr bool
	}{
		{"pothole", DamagePothole, false},
		{"Pothole", DamagePothole, false},
		{"  WATER LEAKAGE  ", DamageWaterLeak, false},
		{"water-leak", DamageWaterLeak, false},
		{"streetlight malfunction", DamageStreetlight, false},
		{"drainage block", DamageDrainage, false},
		{"garbage accumulation", DamageOther, false},
		{"road damage", DamageOther, false},
		{"manhole issue", DamageOther, false},
		{"other", DamageOther, false},
		{"", "", true},
		{"   ", "", true},
		{"earthquake", "", true},
	}

	for _, tt := range tests {
		got, err := ParseDamageType(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDamageType(%q): expected error, got %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDamageType(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDamageType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusSubmitted, StatusUnderReview, true},
		{StatusUnderReview, StatusInProgress, true},
		{StatusUnderReview, StatusRejected, true},
		{StatusInProgress, StatusResolved, true},
		{StatusInProgress, StatusRejected, true},

		{StatusSubmitted, StatusInProgress, false},
		{StatusSubmitted, StatusResolved, false},
		{StatusSubmitted, StatusRejected, false},
		{StatusUnderReview, StatusResolved, false},
		{StatusUnderReview, StatusSubmitted, false},
		{StatusInProgress, StatusUnderReview, false},
		{StatusResolved, StatusInProgress, false},
		{StatusResolved, StatusRejected, false},
		{StatusRejected, StatusUnderReview, false},
		{StatusRejected, StatusResolved, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range AllStatuses {
		wantTerminal := status == StatusResolved || status == StatusRejected
		if got := status.Terminal(); got != wantTerminal {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, wantTerminal)
		}

		// A terminal status permits no outgoing transition at all.
		if wantTerminal {
			for _, to := range AllStatuses {
				if CanTransition(status, to) {
					t.Errorf("terminal status %s allows transition to %s", status, to)
				}
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, status := range AllStatuses {
		got, err := ParseStatus(string(status))
		if err != nil {
			t.Errorf("ParseStatus(%q): unexpected error: %v", status, err)
		}
		if got != status {
			t.Errorf("ParseStatus(%q) = %q", status, got)
		}
	}

	if _, err := ParseStatus("ESCALATED"); err == nil {
		t.Error("ParseStatus accepted unknown status")
	}
}

func TestNewIDFormat(t *testing.T) {
	id := NewID()

	if !strings.HasPrefix(id, "JAN-") {
		t.Fatalf("ID %q missing JAN- prefix", id)
	}
	token := strings.TrimPrefix(id, "JAN-")
	if len(token) != 8 {
		t.Fatalf("token %q length = %d, want 8", token, len(token))
	}
	for _, r := range token {
		if !strings.ContainsRune(idAlphabet, r) {
			t.Errorf("token %q contains %q outside the Crockford alphabet", token, r)
		}
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate ID after %d draws: %s", i, id)
		}
		seen[id] = true
	}
}

func TestDamageAssessmentValidate(t *testing.T) {
	valid := DamageAssessment{
		Type:     DamageStreetlight,
		Severity: 3,
		Factors:  []RiskFactor{FactorHeavyTraffic},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid assessment rejected: %v", err)
	}

	if !valid.HasFactor(FactorHeavyTraffic) {
		t.Error("HasFactor missed a present factor")
	}
	if valid.HasFactor(FactorNearSchool) {
		t.Error("HasFactor reported an absent factor")
	}
}
