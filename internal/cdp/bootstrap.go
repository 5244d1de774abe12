package cdp

// ScrollBinding is the page binding that receives forwarded wheel deltas.
const ScrollBinding = "__tabwallScroll"

// bootstrapScript runs in every panel document before page scripts.
// Passkey prompts would steal focus from the wall, so WebAuthn is
// disabled. Horizontal wheel movement (or Shift+wheel) is forwarded to the
// host so the whole strip scrolls instead of the page.
const bootstrapScript = `(function() {
  try {
    Object.defineProperty(window, 'PublicKeyCredential', { value: undefined, configurable: true });
  } catch (e) {}
  if (navigator.credentials) {
    var deny = function() {
      return Promise.reject(new DOMException('Passkeys are disabled in this panel', 'NotAllowedError'));
    };
    try {
      navigator.credentials.get = deny;
      navigator.credentials.create = deny;
    } catch (e) {}
  }
  window.addEventListener('wheel', function(e) {
    var dx = e.deltaX;
    if (e.shiftKey && dx === 0) dx = e.deltaY;
    if (Math.abs(dx) <= Math.abs(e.deltaY) && !e.shiftKey) return;
    if (dx === 0 || typeof window.` + ScrollBinding + ` !== 'function') return;
    e.preventDefault();
    window.` + ScrollBinding + `(JSON.stringify({ deltaX: dx }));
  }, { passive: false, capture: true });
})();`
