// Package security derives the engine's security posture report and the
// configuration lint behind it. The root package exposes both through
// Engine.SecurityReport and Config.Lint.
package security
