package shared

import "log/slog"

// LevelCritical marks ledger inconsistencies that need an operator. The app
// logger renders it as CRITICAL.
const LevelCritical = slog.Level(12)
