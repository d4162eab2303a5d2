// Package cdc holds the USB Communications Device Class codes, requests and
// functional descriptors shared by the networking control models.
//
// The NCM function in [github.com/ardnew/usbncm/device/class/ncm] builds its
// communications interface from these pieces:
//
//   - Header Functional Descriptor
//   - Union Functional Descriptor
//   - Ethernet Networking Functional Descriptor
//   - NCM Functional Descriptor
//
// and reports link changes with a [Notification] on the interrupt endpoint.
package cdc
