package mail

import "fmt"

const (
	VerificationSubject  = "Verify your email address"
	PasswordResetSubject = "Password Reset Request"
)

// VerificationBody renders the HTML body carrying the 4-digit verification code.
func VerificationBody(name, code string) string {
	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2 style="color: #333;">Welcome to Cooklio, %s!</h2>
			<p>Thank you for registering. Please use the following verification code to verify your email address:</p>
			<div style="text-align: center; margin: 30px 0;">
				<span style="font-size: 24px; font-weight: bold; background-color: #f0f0f0; padding: 10px 20px; border-radius: 5px; letter-spacing: 3px;">%s</span>
			</div>
			<p>This code will expire in 15 minutes.</p>
			<p>If you didn't create an account with us, please ignore this email.</p>
		</div>
	`, name, code)
}

// PasswordResetBody renders the HTML body carrying the 4-digit reset code.
func PasswordResetBody(name, code string) string {
	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2 style="color: #333;">Password Reset Request</h2>
			<p>Hello %s,</p>
			<p>You requested to reset your password. Please use the following code to reset your password:</p>
			<div style="text-align: center; margin: 30px 0;">
				<span style="font-size: 24px; font-weight: bold; background-color: #f0f0f0; padding: 10px 20px; border-radius: 5px; letter-spacing: 3px;">%s</span>
			</div>
			<p>This code will expire in 15 minutes.</p>
			<p>If you didn't request a password reset, please ignore this email.</p>
		</div>
	`, name, code)
}
