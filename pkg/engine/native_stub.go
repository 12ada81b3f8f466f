//go:build !fasttls

package engine

func nativeRegistration() registration {
	return registration{reason: "binary built without the fasttls tag"}
}
