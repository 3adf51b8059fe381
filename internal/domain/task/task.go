package task

import "encoding/json"

// Task is any payload that can ride a redis stream.
type Task interface {
	TaskType() string
	TaskValue() ([]byte, error)
}

func DefaultTaskValue(task interface{}) ([]byte, error) {
	return json.Marshal(task)
}

func UnmarshalTask[T Task](task []byte) (T, error) {
	var t T
	err := json.Unmarshal(task, &t)
	return t, err
}
