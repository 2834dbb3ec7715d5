// Package v4l2 implements a frame source over Video4Linux2 capture nodes, such as the Z16 depth
// node a RealSense camera exposes under /dev/video*. It is only available on Linux.
package v4l2
