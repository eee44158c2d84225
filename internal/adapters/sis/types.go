// Package sis models the wire contract of the Student Information System's
// registration endpoint and provides a thin HTTP client for it.
package sis

// RegisterRequest is the POST body for the add/drop registration endpoint
type RegisterRequest struct {
	ECRN []string `json:"ECRN" validate:"max=12,dive,len=5,numeric"`
	SCRN []string `json:"SCRN" validate:"dive,len=5,numeric"`
}

// CRNResult is one entry of ecrnResultList/scrnResultList in the response
type CRNResult struct {
	CRN        string `json:"crn"`
	StatusCode string `json:"statusCode"`
	ResultCode string `json:"resultCode"`
}

// RegisterResponse is the JSON object returned by the registration endpoint
type RegisterResponse struct {
	StatusCode     int         `json:"statusCode"`
	ECRNResultList []CRNResult `json:"ecrnResultList"`
	SCRNResultList []CRNResult `json:"scrnResultList"`
}
