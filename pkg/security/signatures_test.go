package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyHMAC(t *testing.T) {
	payload := []byte(`{"event":"order.paid"}`)
	sig := SignHMAC("whsec", payload)

	assert.Len(t, sig, 64)
	assert.True(t, VerifyHMAC("whsec", payload, sig))
	assert.True(t, VerifyHMAC("whsec", payload, strings.ToUpper(sig)))
	assert.False(t, VerifyHMAC("other", payload, sig))
	assert.False(t, VerifyHMAC("whsec", []byte(`{"event":"order.paid" }`), sig))
	assert.False(t, VerifyHMAC("whsec", payload, "not-hex"))
	assert.False(t, VerifyHMAC("", payload, sig))
	assert.False(t, VerifyHMAC("whsec", payload, ""))
}
