// Package logging provides structured JSON logging with size-based file
// rotation. Logs are written under ~/.chatmydocs/logs. The MCP server mode
// never writes to stdout or stderr because stdout carries the protocol.
package logging
