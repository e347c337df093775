// Package ratelimit paces requests against the publishing platform.
//
// JitterDelay spaces out consecutive requests with a uniformly random pause,
// 8 to 15 seconds between enumeration pages and 30 to 120 seconds between
// article captures by default. Escalation tracks consecutive throttling
// replies from the enumeration API: every hit waits a growing multiple of
// Step, and the run stops once Limit consecutive hits are reached.
//
//	pacer := ratelimit.NewJitterDelay(8*time.Second, 15*time.Second)
//	throttle := ratelimit.NewEscalation(time.Minute, 3)
//
//	for {
//	    page, err := fetch()
//	    if isThrottled(page) {
//	        wait, exhausted := throttle.Hit()
//	        if exhausted {
//	            break
//	        }
//	        sleep(wait)
//	        continue
//	    }
//	    throttle.Reset()
//	    pacer.Wait(ctx)
//	}
package ratelimit
