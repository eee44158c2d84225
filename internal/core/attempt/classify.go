package attempt

import "autoreg/internal/adapters/sis"

// successCode is the SIS's sentinel for "this CRN action succeeded".
const successCode = "0"

// classify maps one SIS per-CRN result code to a Status per the table in
// spec.md §4.5. dropped reports whether this CRN came from the SCRN (drop)
// list, whose success code collapses to "dropped" rather than "success".
func classify(code string, dropped bool) Status {
	switch code {
	case successCode:
		if dropped {
			return StatusDropped
		}
		return StatusSuccess
	case "WindowClosed":
		return StatusPending
	case "AlreadyEnrolled":
		return StatusAlreadyEnrolled
	case "Full":
		return StatusFull
	case "Conflict":
		return StatusConflict
	case "Debounce":
		return StatusDebounce
	case "UpgradeConflict":
		return StatusUpgrade
	default:
		return StatusError
	}
}

// classifyResponse turns a parsed RegisterResponse into a per-CRN status
// map, tagging ECRN entries as adds and SCRN entries as drops.
func classifyResponse(resp *sis.RegisterResponse) map[string]Status {
	out := make(map[string]Status, len(resp.ECRNResultList)+len(resp.SCRNResultList))
	for _, r := range resp.ECRNResultList {
		out[r.CRN] = classify(r.StatusCode, false)
	}
	for _, r := range resp.SCRNResultList {
		out[r.CRN] = classify(r.StatusCode, true)
	}
	return out
}

// isWindowClosed reports whether any CRN in resp carries the WindowClosed
// transient, which makes the first few attempts eligible for burst-mode
// pacing (spec.md §4.4 "Burst vs sustained pacing").
func isWindowClosed(resp *sis.RegisterResponse) bool {
	for _, r := range resp.ECRNResultList {
		if r.StatusCode == "WindowClosed" {
			return true
		}
	}
	for _, r := range resp.SCRNResultList {
		if r.StatusCode == "WindowClosed" {
			return true
		}
	}
	return false
}

// isDebounced reports whether any ECRN or SCRN result in resp carries the
// SIS's "Debounce" status code.
func isDebounced(resp *sis.RegisterResponse) bool {
	for _, r := range resp.ECRNResultList {
		if r.StatusCode == "Debounce" {
			return true
		}
	}
	for _, r := range resp.SCRNResultList {
		if r.StatusCode == "Debounce" {
			return true
		}
	}
	return false
}
