package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Pipeline field helpers
func Component(name string) Field {
	return String("component", name)
}

func JobID(id string) Field {
	return String("job_id", id)
}

func Stage(name string) Field {
	return String("stage", name)
}

func Task(id int) Field {
	return Int("task", id)
}

func Attempt(n int) Field {
	return Int("attempt", n)
}

// Group takes the rendered group key ("a,b" or "a,b,c")
func Group(key string) Field {
	return String("group", key)
}

func Partitions(p int) Field {
	return Int("partitions", p)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}
