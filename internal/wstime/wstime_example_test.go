package wstime_test

import (
	"fmt"
	"time"

	"github.com/shieldkit/webshield/internal/wstime"
)

func ExampleSystemScheduler() {
	var sched wstime.Scheduler = wstime.SystemScheduler{}

	done := make(chan struct{})
	t := sched.AfterFunc(time.Millisecond, func() { close(done) })
	<-done

	fmt.Println(t.Stop())

	// Output:
	// false
}
