package models

// Principal is the verified identity attached to authenticated requests.
type Principal struct {
	ID            string `json:"_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	S3Enabled     bool   `json:"s3Enabled"`
}
