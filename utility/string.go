package utility

import (
	"fmt"
	"github.com/google/uuid"
	"strconv"
)

// ToInt converts a string to an integer
func ToInt(s string) int {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		fmt.Println(err)
		return 0
	}
	return int(f)
}

// WattsToString converts a value in watts to a string like 7400 to 7.4
func WattsToString(w int) string {
	if w < 100 {
		return "0.0"
	}
	firstPart := w / 1000
	secondPart := (w % 1000) / 100
	return strconv.Itoa(firstPart) + "." + strconv.Itoa(secondPart)
}

func NewUUID() string {
	return uuid.New().String()
}
