// Package telegram is the "client.telegram" module. It spawns the
// interactive chat client process, wraps it in a telegram.Client and
// publishes the client and its access lock as services:
//
//   - "telegram.client": *telegram.Client
//   - "telegram.lock":   *lock.Local, held around multi-command sequences
//
// When the application registered a metrics recorder the client reports
// command timings and unparsed lines to it.
package telegram
