package media

import (
	"gocv.io/x/gocv"

	"github.com/ap0ught/familyman/logger"
)

// preferCUDA switches the network to CUDA when OpenCV was built with it and
// falls back to the default CPU backend otherwise.
func preferCUDA(net *gocv.Net, component string, log *logger.Logger) {
	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Debug(component+": set backend/target to CUDA")
		return
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	log.Debug(component+": CUDA not available, using CPU", "backend_error", cudaBackendErr, "target_error", cudaTargetErr)
}
