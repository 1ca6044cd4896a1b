package domain

import "strings"

// ValidateQuestion checks a question before it enters the retrieval pipeline.
func ValidateQuestion(externalID, question string) error {
	if externalID == "" {
		return &ValidationError{Field: "user", Reason: "external id is empty"}
	}
	if strings.TrimSpace(question) == "" {
		return &ValidationError{Field: "question", Reason: "question text is empty"}
	}
	return nil
}

// ValidateUpload checks one upload job before ingestion.
func ValidateUpload(externalID, filename, text string) error {
	if externalID == "" {
		return &ValidationError{Field: "user", Reason: "external id is empty"}
	}
	if filename == "" {
		return &ValidationError{Field: "filename", Reason: "filename is empty"}
	}
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Reason: "extracted text is empty"}
	}
	return nil
}

// ValidateUser checks a user-creation request.
func ValidateUser(u User) error {
	if u.ExternalID == "" {
		return &ValidationError{Field: "auth0_id", Reason: "external id is empty"}
	}
	if u.Username == "" {
		return &ValidationError{Field: "username", Reason: "username is empty"}
	}
	if u.Lang != "" && !SupportedLangs[u.Lang] {
		return &ValidationError{Field: "lang", Reason: "unsupported language " + u.Lang}
	}
	return nil
}
