package admind

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestAdmindScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "admind scenario suite")
}
