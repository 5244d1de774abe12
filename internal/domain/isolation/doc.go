// Package isolation gives every panel its own persistent browser partition
// with auto-approved permissions, frame-blocking headers stripped and
// certificate errors ignored, and implements per-panel and global resets.
package isolation
