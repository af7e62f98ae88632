// Package poll крутит периодические проходы фоновых воркеров.
package poll

import (
	"context"
	"time"
)

// Loop выполняет pass сразу и затем раз в interval, пока ctx не отменён.
// Проходы не перекрываются: следующий тик ждёт завершения текущего.
func Loop(ctx context.Context, interval time.Duration, pass func(context.Context)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		pass(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
