// Package turntable abstracts the capture turntable and its motor.
//
// The Controller interface carries the four fire-and-forget commands the
// pipeline issues on stage entry and exit; the serial command protocol itself
// lives behind it. A udev netlink monitor reports the serial adapter
// attaching and detaching so the daemon can log rig availability without
// polling the device node.
package turntable
