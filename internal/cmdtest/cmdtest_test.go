package cmdtest

import (
	"testing"
)

func TestMain(m *testing.M) {
	Main(m)
}

func TestLuacov(t *testing.T) {
	Run(t, "testdata/luacov")
}
