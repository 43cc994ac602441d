// Package tgui holds helpers for composing Telegram HTML messages: escaped
// fragments, a line builder and rune-safe truncation.
package tgui
