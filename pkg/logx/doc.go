// Package logx configures sendlater's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional event-bus sink (min-level + rate limiting) so operators
//     subscribed to the bus see warnings without tailing files
package logx
