package utils

import "github.com/parolam/breach-checker/services"

type EmailResponse struct {
	Pwned    bool                  `json:"pwned"`
	Breaches []services.BreachInfo `json:"breaches,omitempty"`
}

type ErrorResponse struct {
	Status string `json:"status"`
	Error  *Error `json:"error"`
}

type Error struct {
	Code    uint   `json:"code"`
	Message string `json:"message"`
}

func GenerateSafeResponse() EmailResponse {
	return EmailResponse{Pwned: false}
}

func GeneratePwnedResponse(breaches []services.BreachInfo) EmailResponse {
	if breaches == nil {
		breaches = []services.BreachInfo{}
	}
	return EmailResponse{
		Pwned:    true,
		Breaches: breaches,
	}
}

func GenerateErrorResponse(code int, err string) ErrorResponse {
	return ErrorResponse{
		Status: "error",
		Error: &Error{
			Code:    uint(code),
			Message: err,
		},
	}
}
