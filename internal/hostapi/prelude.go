package hostapi

import "github.com/cryguy/adhesive/internal/core"

// Managed names of the built-in classes, in path form.
const (
	BaseClassPath     = "adhesive/Adhesive"
	CompilerClassPath = "adhesive/Compiler"
)

// preludeJS installs globalThis.__adhesive, the per-thread operation table
// the runtime manager drives. Each operation taking a thread id runs under
// guard: a thrown value becomes that thread's pending exception and the
// operation returns -1.
//
// References are integers. Non-negative values index the thread's local
// frame; values <= -2 name durable references.
const preludeJS = `
(function() {
	var envs = {};
	var globals = {};
	var nextGlobal = 1;
	var globalCount = 0;
	var methods = [];
	var methodIndex = {};
	var classes = {};
	var names = new Map();
	var current = '';

	class AdhesiveError extends Error {
		constructor(message) {
			super(message);
			this.name = this.constructor.name;
		}
	}
	class NoClassDefFoundError extends AdhesiveError {}
	class NoSuchMethodError extends AdhesiveError {}
	class NoSuchFieldError extends AdhesiveError {}
	class InstantiationError extends AdhesiveError {}

	function describe(err) {
		if (err !== null && typeof err === 'object') {
			return {
				name: String(err.name || (err.constructor && err.constructor.name) || 'Error'),
				message: err.message === undefined ? '' : String(err.message),
				stack: err.stack ? String(err.stack) : ''
			};
		}
		return {name: 'Error', message: String(err), stack: ''};
	}

	function binaryName(path) {
		return path.replace(/\//g, '.');
	}

	function className(c) {
		if (typeof c !== 'function') return String(c);
		return names.get(c) || c.name || '<anonymous>';
	}

	function defineClass(path, ctor) {
		classes[path] = ctor;
		names.set(ctor, binaryName(path));
	}

	function undefineClass(path) {
		if (!Object.prototype.hasOwnProperty.call(classes, path)) return 0;
		names.delete(classes[path]);
		delete classes[path];
		return 1;
	}

	function evalClass(source, simple) {
		return (0, eval)('(function() {\n' + source + '\n;return typeof ' + simple +
			" === 'undefined' ? undefined : " + simple + ';\n})()');
	}

	function loadClass(path) {
		if (Object.prototype.hasOwnProperty.call(classes, path)) return classes[path];
		var src = __adhesive_loadClass(path);
		if (!src) throw new NoClassDefFoundError(binaryName(path));
		var simple = path.substring(path.lastIndexOf('/') + 1);
		var ctor = evalClass(src, simple);
		if (typeof ctor !== 'function') {
			throw new NoClassDefFoundError(binaryName(path) + ' (source does not declare class ' + simple + ')');
		}
		defineClass(path, ctor);
		return ctor;
	}

	function deref(e, ref) {
		if (ref <= -2) {
			var g = -ref - 1;
			if (!Object.prototype.hasOwnProperty.call(globals, g)) throw new ReferenceError('stale durable reference ' + ref);
			return globals[g];
		}
		if (ref < 0 || ref >= e.locals.length) throw new ReferenceError('invalid local reference ' + ref);
		return e.locals[ref];
	}

	function local(e, v) {
		e.locals.push(v);
		return e.locals.length - 1;
	}

	function invoke(e, ref, mid, args) {
		var obj = deref(e, ref);
		var m = methods[mid];
		if (!m) throw new NoSuchMethodError('invalid method id ' + mid);
		var fn = obj === null || obj === undefined ? undefined : obj[m.name];
		if (typeof fn !== 'function') {
			throw new NoSuchMethodError(className(obj && obj.constructor) + '.' + m.name);
		}
		return fn.apply(obj, args);
	}

	function guard(fn) {
		return function(id) {
			var e = envs[id];
			if (!e) throw new Error('thread ' + id + ' is not attached');
			var args = [e];
			for (var i = 1; i < arguments.length; i++) args.push(arguments[i]);
			var prev = current;
			current = String(id);
			try {
				return fn.apply(null, args);
			} catch (err) {
				e.pending = describe(err);
				return -1;
			} finally {
				current = prev;
			}
		};
	}

	var ops = {
		attach: function(id) {
			if (!envs[id]) envs[id] = {locals: [], pending: null};
			return 0;
		},
		attachedCount: function() {
			return Object.keys(envs).length;
		},
		findClass: guard(function(e, path) {
			return local(e, loadClass(path));
		}),
		getObjectClass: guard(function(e, ref) {
			var o = deref(e, ref);
			if (o === null || o === undefined) throw new TypeError('null reference');
			return local(e, o.constructor);
		}),
		getMethodID: guard(function(e, classRef, name, arity) {
			var c = deref(e, classRef);
			var fn = c && c.prototype ? c.prototype[name] : undefined;
			if (typeof fn !== 'function' || fn.length !== arity) {
				throw new NoSuchMethodError(className(c) + '.' + name + ' taking ' + arity + ' argument(s)');
			}
			var key = name + '/' + arity;
			if (!Object.prototype.hasOwnProperty.call(methodIndex, key)) {
				methods.push({name: name, arity: arity});
				methodIndex[key] = methods.length - 1;
			}
			return methodIndex[key];
		}),
		newObject: guard(function(e, classRef) {
			var C = deref(e, classRef);
			if (typeof C !== 'function') throw new InstantiationError(className(C) + ' is not a class');
			return local(e, new C());
		}),
		getStaticField: guard(function(e, classRef, name) {
			var c = deref(e, classRef);
			if (c === null || c === undefined || !(name in c)) throw new NoSuchFieldError(className(c) + '.' + name);
			return local(e, c[name]);
		}),
		isInstanceOf: guard(function(e, ref, classRef) {
			return deref(e, ref) instanceof deref(e, classRef) ? 1 : 0;
		}),
		callObjectMethod: guard(function(e, ref, mid) {
			return local(e, invoke(e, ref, mid, Array.prototype.slice.call(arguments, 3)));
		}),
		callVoidMethod: guard(function(e, ref, mid) {
			invoke(e, ref, mid, Array.prototype.slice.call(arguments, 3));
			return 0;
		}),
		newGlobalRef: guard(function(e, ref) {
			var g = nextGlobal++;
			globals[g] = deref(e, ref);
			globalCount++;
			return -(g + 1);
		}),
		deleteGlobalRef: function(ref) {
			var g = -ref - 1;
			if (!Object.prototype.hasOwnProperty.call(globals, g)) return 0;
			delete globals[g];
			globalCount--;
			return 1;
		},
		globalRefCount: function() {
			return globalCount;
		},
		popLocalFrame: function(id) {
			var e = envs[id];
			if (e) e.locals = [];
			return 0;
		},
		exceptionCheck: function(id) {
			var e = envs[id];
			return !!(e && e.pending);
		},
		takeException: function(id) {
			var e = envs[id];
			if (!e || !e.pending) return '';
			var p = e.pending;
			e.pending = null;
			return JSON.stringify(p);
		},
		currentThread: function() {
			return current;
		},
		hasClass: function(path) {
			return Object.prototype.hasOwnProperty.call(classes, path);
		},
		describe: describe,
		defineClass: defineClass,
		undefineClass: undefineClass,
		evalClass: evalClass,
		className: className
	};

	Object.defineProperty(globalThis, '__adhesive', {value: ops});
	globalThis.NoClassDefFoundError = NoClassDefFoundError;
	globalThis.NoSuchMethodError = NoSuchMethodError;
	globalThis.NoSuchFieldError = NoSuchFieldError;
	globalThis.InstantiationError = InstantiationError;
})();
`

// SetupPrelude installs the thread operation table and the managed error
// classes.
func SetupPrelude(rt core.Runtime) error {
	return rt.Eval(preludeJS)
}
