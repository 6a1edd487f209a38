//go:build !race

package shield

func passwordHashCost() int {
	return 12
}
