package crypto

// Zero overwrites b in place. Best effort: Go gives no guarantee the
// compiler keeps the stores, but it shortens the window key material
// sits in reachable memory.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
