//go:build !linux

package rt

import "runtime"

func setPriority(int) error {
	return ErrNotSupported
}

func pin(int) error {
	return ErrNotSupported
}

func allowedCPUs() ([]int, error) {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}
