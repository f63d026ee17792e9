package health

import "testing"

func TestRollup(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   Verdict
	}{
		{
			"all ok",
			Report{
				Installation:  Check{Status: CheckOK},
				Process:       Check{Status: CheckOK},
				Network:       Check{Status: CheckOK},
				Configuration: Check{Status: CheckOK},
			},
			VerdictHealthy,
		},
		{
			"process dead",
			Report{
				Installation:  Check{Status: CheckOK},
				Process:       Check{Status: CheckFail},
				Network:       Check{Status: CheckFail},
				Configuration: Check{Status: CheckOK},
			},
			VerdictUnhealthy,
		},
		{
			"no installation",
			Report{
				Installation: Check{Status: CheckFail},
				Process:      Check{Status: CheckFail},
			},
			VerdictUnhealthy,
		},
		{
			"alive but unreachable",
			Report{
				Installation:  Check{Status: CheckOK},
				Process:       Check{Status: CheckOK},
				Network:       Check{Status: CheckWarn},
				Configuration: Check{Status: CheckOK},
			},
			VerdictDegraded,
		},
		{
			"missing source password",
			Report{
				Installation:  Check{Status: CheckOK},
				Process:       Check{Status: CheckOK},
				Network:       Check{Status: CheckOK},
				Configuration: Check{Status: CheckWarn},
			},
			VerdictDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rollup(tt.report); got != tt.want {
				t.Errorf("rollup = %q, want %q", got, tt.want)
			}
		})
	}
}
